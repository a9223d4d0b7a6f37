package analytics

import (
	"encoding/json"
	"fmt"

	"github.com/mxmCherry/openrtb"

	"github.com/bidscreen/bidscreen-server/validation"
)

type RequestType string

const (
	NATIVE   RequestType = "native"
	OPENRTB2 RequestType = "openrtb2"
)

// Module must be implemented by analytics modules to log screening
// transactions wherever they need to go.
type Module interface {
	LogScreeningObject(*ScreeningObject)
}

// ScreeningObject is the loggable record of one transaction at a screening
// endpoint.
type ScreeningObject struct {
	TransactionID string
	Type          RequestType
	Status        int
	Account       string

	AdsIn   int
	AdsOut  int
	BidsIn  int
	BidsOut int

	// Rejections tallies the pruned bids by reason.
	Rejections map[validation.Reason]int

	Errors []error

	// Device and User are only filled on the openrtb2 path, and only when the
	// request's consent allows logging them.
	Device *openrtb.Device
	User   *openrtb.User
}

func (so *ScreeningObject) ToJson() string {
	if content, err := json.Marshal(so); err != nil {
		return fmt.Sprintf("Transactional Logs Error: Screening object badly formed %v", err)
	} else {
		return string(content)
	}
}
