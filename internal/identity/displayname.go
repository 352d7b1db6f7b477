package identity

import (
	"fmt"

	"github.com/google/uuid"
)

// Word lists for human-readable worker names. Deterministic from the UUID, so
// the same identity always shows up under the same name in logs and listings.
var (
	nameAdjectives = []string{
		"amber", "bold", "brisk", "calm", "clever", "crimson", "daring", "eager",
		"fleet", "gentle", "golden", "hardy", "keen", "lively", "lucid", "mellow",
		"nimble", "noble", "quiet", "rapid", "rustic", "silent", "solid", "steady",
		"stout", "swift", "tidy", "vivid", "wild", "wise", "witty", "young",
	}
	nameNouns = []string{
		"badger", "bison", "condor", "coyote", "crane", "falcon", "ferret", "finch",
		"gecko", "heron", "ibex", "jackal", "kestrel", "lemur", "lynx", "marmot",
		"marten", "moose", "osprey", "otter", "owl", "panther", "puffin", "raven",
		"salmon", "stoat", "swift", "tapir", "viper", "walrus", "weasel", "wren",
	}
)

// DisplayName derives a stable "adjective-noun-NN" name from the identity UUID.
func DisplayName(id uuid.UUID) string {
	adj := nameAdjectives[int(id[0])%len(nameAdjectives)]
	noun := nameNouns[int(id[1])%len(nameNouns)]
	return fmt.Sprintf("%s-%s-%02d", adj, noun, int(id[2])%100)
}
