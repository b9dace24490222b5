package storage

import (
	"os"
	"testing"

	"github.com/smilemakc/wmcore/testutil"
)

func TestMain(m *testing.M) {
	os.Exit(testutil.RunWithEmbeddedDB(m))
}
