package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codeRequest struct {
	Phone string  `json:"phone" validate:"required,max=20"`
	Code  string  `json:"code" validate:"required,len=6,numeric"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Tries int     `json:"tries" validate:"gte=0,lte=5"`
	Note  string  `validate:"omitempty,oneof=a b"`
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	return valErr.Fields()
}

func strPtr(s string) *string { return &s }

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(codeRequest{Phone: "01012345678", Code: "123456"}))
}

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	fields := fieldsOf(t, Validate(codeRequest{Code: "123456"}))

	assert.Equal(t, "is required", fields["phone"])
	assert.NotContains(t, fields, "Phone")
}

func TestValidate_FallsBackToGoFieldName(t *testing.T) {
	fields := fieldsOf(t, Validate(codeRequest{Phone: "010", Code: "123456", Note: "c"}))

	assert.Equal(t, "must be one of: a b", fields["Note"])
}

func TestValidate_CodeRules(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"12345", "must be exactly 6 characters"},
		{"12a456", "must contain digits only"},
		{"", "is required"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			fields := fieldsOf(t, Validate(codeRequest{Phone: "01012345678", Code: tt.code}))
			assert.Equal(t, tt.want, fields["code"])
		})
	}
}

func TestValidate_StringMaxMentionsCharacters(t *testing.T) {
	fields := fieldsOf(t, Validate(codeRequest{Phone: "010123456789012345678", Code: "123456"}))

	assert.Equal(t, "must be at most 20 characters", fields["phone"])
}

func TestValidate_NumericRange(t *testing.T) {
	fields := fieldsOf(t, Validate(codeRequest{Phone: "010", Code: "123456", Tries: 9}))

	assert.Equal(t, "must be less than or equal to 5", fields["tries"])
}

func TestValidate_OptionalEmail(t *testing.T) {
	assert.NoError(t, Validate(codeRequest{Phone: "010", Code: "123456", Email: nil}))

	fields := fieldsOf(t, Validate(codeRequest{Phone: "010", Code: "123456", Email: strPtr("nope")}))
	assert.Equal(t, "must be a valid email address", fields["email"])
}

func TestValidationError_ErrorString(t *testing.T) {
	err := Validate(codeRequest{})
	require.Error(t, err)

	assert.Contains(t, err.Error(), "field 'phone' is required")
	assert.Contains(t, err.Error(), "field 'code' is required")
}

func TestValidate_NonStructIsNotValidationError(t *testing.T) {
	err := Validate("not a struct")
	require.Error(t, err)

	var valErr *ValidationError
	assert.NotErrorAs(t, err, &valErr)
}
