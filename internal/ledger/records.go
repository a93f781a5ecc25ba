package ledger

import (
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// StorageNode is a registered storage target and its reputation counters.
type StorageNode struct {
	Identity             string    `json:"identity"`
	TrustScore           int       `json:"trustScore"`
	TotalStored          uint64    `json:"totalStored"`
	SuccessfulRetrievals uint64    `json:"successfulRetrievals"`
	FailedRetrievals     uint64    `json:"failedRetrievals"`
	IsActive             bool      `json:"isActive"`
	RegisteredAt         time.Time `json:"registeredAt"`
	LastActivity         time.Time `json:"lastActivity"`
}

// FragmentRef locates one fragment of a file.
type FragmentRef struct {
	Index        int      `json:"fragmentIndex"`
	Hash         string   `json:"fragmentHash"`
	Size         int      `json:"fragmentSize"`
	AssignedNode string   `json:"assignedNode"` // AssignedNode is the primary replica
	Replicas     []string `json:"replicas"`     // Replicas lists every holder, primary first
}

// FileRecord is the immutable placement and integrity metadata of a stored file.
type FileRecord struct {
	FileHash    string        `json:"fileHash"`
	Owner       string        `json:"owner"`
	FileName    string        `json:"fileName"`
	FileSize    int64         `json:"fileSize"`
	Compression string        `json:"compression"`
	UploadedAt  time.Time     `json:"uploadTimestamp"`
	Fragments   []FragmentRef `json:"fragments"`
	Exists      bool          `json:"exists"`
}

// Grant records that Grantee may retrieve FileHash.
type Grant struct {
	FileHash  string    `json:"fileHash"`
	Grantee   string    `json:"grantee"`
	GrantedAt time.Time `json:"grantedAt"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano

	encMode, err = opts.EncMode()
	if err != nil {
		panic("ledger: cbor encoder: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("ledger: cbor decoder: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
