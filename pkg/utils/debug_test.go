package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFileAndLoC(t *testing.T) {
	got := GetFileAndLoC(0)
	assert.True(t, strings.HasSuffix(got, "pkg/utils/debug_test.go:11"), "GetFileAndLoC() = %v", got)
}

func Test_trimPath(t *testing.T) {
	type args struct {
		filepath string
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{
			name: "inside project directory",
			args: args{filepath: "/home/dev/src/watch-party-sync/pkg/logger/logger.go"},
			want: "watch-party-sync/pkg/logger/logger.go",
		},
		{
			name: "outside project directory",
			args: args{filepath: "/root/module/service-peer/internal/engine/engine.go"},
			want: "internal/engine/engine.go",
		},
		{
			name: "short path",
			args: args{filepath: "main.go"},
			want: "main.go",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := trimPath(tt.args.filepath)
			assert.Equal(t, tt.want, got, "trimPath() = %v, want %v", got, tt.want)
		})
	}
}
