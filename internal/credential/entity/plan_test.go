package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlanFromValue(t *testing.T) {
	assert.Equal(t, PlanOneMonth, PlanFromValue(2000))
	assert.Equal(t, PlanFree, PlanFromValue(0))
	assert.Equal(t, PlanFree, PlanFromValue(999)) // unknown value
	assert.Equal(t, PlanOneYear, PlanFromValue(22000))
}

func TestPlanPaid(t *testing.T) {
	assert.False(t, PlanFree.Paid())
	assert.True(t, PlanOneDay.Paid())
	assert.Equal(t, float64(600), PlanOneWeek.Charge())
}

func TestLastOTPValidAt(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	u := &User{LastOTP: "123456", LastOTPIssuedAt: issued, OTPValiditySeconds: 60}

	assert.True(t, u.LastOTPValidAt(issued.Add(59*time.Second)))
	assert.False(t, u.LastOTPValidAt(issued.Add(60*time.Second)))
	assert.False(t, (&User{}).LastOTPValidAt(issued))
	assert.False(t, (*User)(nil).LastOTPValidAt(issued))
}
