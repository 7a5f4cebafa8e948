package config

import (
	"os"
	"testing"

	"github.com/zhubert/cristal-core/logger"
)

func TestMain(m *testing.M) {
	// Keep test output out of the real log file
	logger.Reset()
	logger.Init(os.DevNull)

	code := m.Run()

	logger.Reset()
	os.Exit(code)
}
