package main

import (
	"net"
	"os"
	"path/filepath"

	"github.com/medicare-hms/offline-agent/internal/cache"
	"github.com/medicare-hms/offline-agent/internal/config"
)

func main() {
	sock := defaultString(os.Getenv("MEDICARE_AGENT_CACHE_SOCK"), config.DefaultSocketPath())
	db := defaultString(os.Getenv("MEDICARE_AGENT_CACHE_DB"), config.DefaultDBPath())

	// Ensure socket dir exists and remove stale socket
	_ = os.MkdirAll(filepath.Dir(sock), 0o755)
	_ = os.Remove(sock)

	l, err := net.Listen("unix", sock)
	if err != nil {
		panic(err)
	}
	defer l.Close()
	_ = os.Chmod(sock, 0o600)

	_ = os.MkdirAll(filepath.Dir(db), 0o755)
	store, err := cache.Open(db)
	if err != nil {
		panic(err)
	}
	defer store.Close()

	for {
		conn, err := l.Accept()
		if err != nil {
			continue
		}
		go cache.ServeConn(conn, store)
	}
}

func defaultString(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
