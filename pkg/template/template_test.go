package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripline/dripline/pkg/template"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     map[string]any
		want     string
	}{
		{
			name:     "substitutes variables",
			template: "Hi {{.first_name}}, your plan is {{.plan}}",
			data:     map[string]any{"first_name": "Ana", "plan": "pro"},
			want:     "Hi Ana, your plan is pro",
		},
		{
			name:     "missing key renders empty",
			template: "Hi {{.first_name}}!",
			data:     map[string]any{},
			want:     "Hi !",
		},
		{
			name:     "no variables",
			template: "Welcome aboard",
			data:     nil,
			want:     "Welcome aboard",
		},
		{
			name:     "helper functions",
			template: "{{upper .code}}",
			data:     map[string]any{"code": "save20"},
			want:     "SAVE20",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := template.Render(tt.template, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_ParseError(t *testing.T) {
	_, err := template.Render("Hi {{.first_name", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")
}
