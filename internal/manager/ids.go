package manager

import (
	"time"

	"github.com/google/uuid"
)

// timeLayout matches the RFC3339Nano format R stores every timestamp in.
const timeLayout = time.RFC3339Nano

func newID() string { return uuid.NewString() }

func nowFunc() time.Time { return time.Now().UTC() }
