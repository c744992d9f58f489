package files

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantErr  bool
	}{
		{name: "csv", filename: "data.csv", wantErr: false},
		{name: "csv uppercase", filename: "DATA.CSV", wantErr: false},
		{name: "xlsx", filename: "report.xlsx", wantErr: false},
		{name: "json", filename: "payload.json", wantErr: false},
		{name: "gz", filename: "logs.gz", wantErr: false},
		{name: "csv.gz", filename: "data.csv.gz", wantErr: false},
		{name: "executable", filename: "run.exe", wantErr: true},
		{name: "no extension", filename: "README", wantErr: true},
		{name: "trailing dot", filename: "data.", wantErr: true},
		{name: "empty", filename: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.filename)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFileType)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
