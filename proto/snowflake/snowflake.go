package snowflake

import (
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	m    sync.Mutex
	node *snowflake.Node
)

func init() {
	snowflake.Epoch = Epoch.UnixNano() / int64(time.Millisecond)
}

// ValidNode reports whether id fits in the node bits of a snowflake.
func ValidNode(id int64) bool { return id >= 0 && id < int64(1)<<snowflake.NodeBits }

// Configure pins the node id stamped into new snowflakes. Without it, the
// node id is derived from the hostname.
func Configure(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("snowflake: %w", err)
	}
	m.Lock()
	node = n
	m.Unlock()
	return nil
}

func defaultNode() (*snowflake.Node, error) {
	m.Lock()
	defer m.Unlock()
	if node != nil {
		return node, nil
	}
	host, _ := os.Hostname()
	h := fnv.New32a()
	h.Write([]byte(host))
	n, err := snowflake.NewNode(int64(h.Sum32() % (1 << snowflake.NodeBits)))
	if err != nil {
		return nil, err
	}
	node = n
	return node, nil
}

type Snowflake int64

func New() (Snowflake, error) {
	n, err := defaultNode()
	if err != nil {
		return 0, fmt.Errorf("snowflake: %w", err)
	}
	return Snowflake(n.Generate().Int64()), nil
}

// String renders s as 13 base-36 digits, so that string order matches
// generation order.
func (s Snowflake) String() string {
	if s == 0 {
		return ""
	}
	return fmt.Sprintf("%013s", strconv.FormatInt(int64(s), 36))
}
