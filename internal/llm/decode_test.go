package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Text string `json:"text"`
	}

	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "bare object", content: `{"text":"a"}`, want: "a"},
		{name: "json fence", content: "```json\n{\"text\":\"b\"}\n```", want: "b"},
		{name: "plain fence", content: "  ```\n{\"text\":\"c\"}\n```  ", want: "c"},
		{name: "single line fence", content: "```json{\"text\":\"d\"}```", want: "d"},
		{name: "not json", content: "Sorry, I cannot help.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p payload
			err := DecodeJSON(tt.content, &p)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Text)
		})
	}
}

func TestImage_DataURL(t *testing.T) {
	t.Parallel()

	img := Image{Data: []byte("hi"), MIMEType: "image/png"}
	assert.Equal(t, "data:image/png;base64,aGk=", img.DataURL())
}
