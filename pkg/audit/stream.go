package audit

import (
	"encoding/json"
	"io"
	"sync"
)

// StreamHandler returns a Handler that mirrors every appended entry to w as
// one prefixed JSON line, for shipping the trail to log collectors. Write
// failures are dropped; the trail itself stays authoritative.
func StreamHandler(w io.Writer) Handler {
	var mu sync.Mutex
	return func(e *Entry) {
		data, err := json.Marshal(e)
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		_, _ = w.Write(append([]byte("AUDIT: "), append(data, '\n')...))
	}
}
