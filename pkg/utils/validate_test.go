package utils

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID      uuid.UUID `validate:"required"`
	Name    string    `validate:"max=5"`
	Contact *string   `validate:"omitempty,email"`
}

func TestValidate(t *testing.T) {
	bad := "not-an-email"
	good := "someone@example.com"

	tests := []struct {
		name    string
		input   sample
		wantErr string
	}{
		{name: "valid", input: sample{ID: uuid.New(), Name: "Ann", Contact: &good}},
		{name: "nil uuid", input: sample{Name: "Ann"}, wantErr: "field 'ID' failed rule 'required'"},
		{name: "too long", input: sample{ID: uuid.New(), Name: "Annabelle"}, wantErr: "field 'Name' failed rule 'max=5'"},
		{name: "bad email", input: sample{ID: uuid.New(), Contact: &bad}, wantErr: "field 'Contact' failed rule 'email'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
