package memory

import (
	"testing"

	"github.com/jmcleod/sessionkeep/credstore/repotest"
)

func TestMemoryRepository(t *testing.T) {
	repotest.Run(t, NewRepository())
}
