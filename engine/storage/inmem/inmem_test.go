package inmem

import (
	"testing"

	"github.com/iqrfcloud/gwcmd/engine/storage"
	"github.com/iqrfcloud/gwcmd/engine/storage/test"
)

func TestInmemStorage(t *testing.T) {
	test.TestEngineStorage(t, func() storage.Storage { return New() })
}
