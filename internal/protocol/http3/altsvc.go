package http3

import (
	"fmt"
	"time"
)

func secondsToDuration(s int64) time.Duration { return time.Duration(s) * time.Second }

func altSvcValue(port int) string {
	return fmt.Sprintf(`h3=":%d"; ma=86400`, port)
}
