package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterwise/internal/models"
)

func validSubmission() models.Submission {
	sub := models.Submission{
		models.KeyLocation:    "Test River",
		models.KeyTestDate:    "2024-03-01",
		models.KeyWaterSource: "Spring",
	}
	for i, f := range models.PredictionFields {
		sub[f.Key] = []string{"7.2", "1.5", "23.5", "400", "6", "0.2", "450", "120", "85", "0.3", "0", "0"}[i]
	}
	return sub
}

func TestValidateBuildsRequestInCanonicalOrder(t *testing.T) {
	req, err := Validate(validSubmission())
	require.NoError(t, err)

	assert.Equal(t, models.PredictionRequest{7.2, 1.5, 23.5, 400, 6, 0.2, 450, 120, 85, 0.3, 0, 0}, req)
}

func TestValidateEachRequiredField(t *testing.T) {
	for _, f := range models.PredictionFields {
		f := f
		t.Run(f.Key, func(t *testing.T) {
			cases := map[string]struct {
				mutate func(models.Submission)
				reason string
			}{
				"missing":  {func(s models.Submission) { delete(s, f.Key) }, ReasonMissing},
				"empty":    {func(s models.Submission) { s[f.Key] = "  " }, ReasonEmpty},
				"text":     {func(s models.Submission) { s[f.Key] = "clear" }, ReasonNotNumeric},
				"nan":      {func(s models.Submission) { s[f.Key] = "NaN" }, ReasonNotNumeric},
				"infinite": {func(s models.Submission) { s[f.Key] = "+Inf" }, ReasonNotNumeric},
			}
			for name, tc := range cases {
				sub := validSubmission()
				tc.mutate(sub)

				_, err := Validate(sub)

				var verr *Error
				require.True(t, errors.As(err, &verr), name)
				assert.Equal(t, f.Key, verr.Field, name)
				assert.Equal(t, tc.reason, verr.Reason, name)
			}
		})
	}
}

func TestValidateFailsFastOnFirstDeclaredField(t *testing.T) {
	sub := validSubmission()
	delete(sub, "e_coli")
	sub["turbidity"] = "murky"

	_, err := Validate(sub)

	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "turbidity", verr.Field)
	assert.Equal(t, "invalid number for field: turbidity", verr.Error())
}

func TestValidateIgnoresOptionalFields(t *testing.T) {
	sub := validSubmission()
	delete(sub, models.KeyLocation)
	delete(sub, models.KeyAdditionalNotes)

	_, err := Validate(sub)
	assert.NoError(t, err)
}
