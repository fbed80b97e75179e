package instance

import (
	"os"
	"sync"

	"github.com/google/uuid"
)

var (
	once sync.Once
	id   string
)

// GetID identifies this process when it takes distributed locks. WORKER_ID wins;
// otherwise the hostname plus a random suffix keeps replicas on one host apart.
func GetID() string {
	once.Do(func() {
		id = resolve(os.Getenv("WORKER_ID"), os.Hostname)
	})
	return id
}

func resolve(configured string, hostname func() (string, error)) string {
	if configured != "" {
		return configured
	}
	suffix := uuid.NewString()[:8]
	host, err := hostname()
	if err != nil || host == "" {
		return "order-progress-" + suffix
	}
	return host + "-" + suffix
}
