package mysql

import (
	"os"
	"testing"

	"github.com/iqrfcloud/gwcmd/engine/storage"
	"github.com/iqrfcloud/gwcmd/engine/storage/test"
)

func TestMySQLStorage(t *testing.T) {
	testDSN := os.Getenv("GWCMD_MYSQL_STORAGE_TEST_DSN")
	if testDSN == "" {
		t.Skip("GWCMD_MYSQL_STORAGE_TEST_DSN not set")
	}

	s, err := New(WithDSN(testDSN))
	if err != nil {
		t.Fatal(err)
	}

	// to test using an existing DB/DSN:
	//
	// DELETE FROM step_records;
	// DELETE FROM instances;

	test.TestEngineStorage(t, func() storage.Storage { return s })
}
