package agent

import (
	"net/http"
	"time"

	"github.com/medicare-hms/offline-agent/internal/cache"
)

// offlineHTML is served when a navigation fails and no cached fallback
// exists. Status stays 200 so the page renders instead of an error.
const offlineHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>MediCare Hospital</title>
</head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4rem;">
<h1>MediCare Hospital</h1>
<p>You are offline. Please check your connection and try again.</p>
</body>
</html>
`

func offlineEntry() cache.Entry {
	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	return cache.Entry{
		Status:   http.StatusOK,
		Header:   h,
		Body:     []byte(offlineHTML),
		StoredAt: time.Now(),
	}
}
