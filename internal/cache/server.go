package cache

import (
	"encoding/json"
	"net"
)

// ServeConn answers protocol requests on one daemon connection until the
// peer disconnects.
func ServeConn(conn net.Conn, kv KV) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		_ = enc.Encode(handle(req, kv))
	}
}

func handle(req Request, kv KV) Response {
	switch req.Op {
	case "get":
		v, err := kv.Get(req.Namespace, req.Key)
		if err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true, Value: v}
	case "put":
		if err := kv.Put(req.Namespace, req.Key, req.Value); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true}
	case "delete":
		if err := kv.Delete(req.Namespace, req.Key); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true}
	case "match":
		v, err := kv.Match(req.Key)
		if err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true, Value: v}
	case "namespaces":
		names, err := kv.Namespaces()
		if err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true, Namespaces: names}
	case "ensure-ns":
		if err := kv.EnsureNamespace(req.Namespace); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true}
	case "drop-ns":
		if err := kv.DropNamespace(req.Namespace); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true}
	}
	return Response{Error: "unknown op"}
}
