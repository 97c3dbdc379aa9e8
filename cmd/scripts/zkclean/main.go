package main

import (
	"errors"
	"flag"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"go.uber.org/zap"
)

type znode struct {
	path    string
	version int32
}

// collect walks the tree under parent depth first, parents before children.
func collect(conn *zk.Conn, parent string, nodes []znode) ([]znode, error) {
	_, stat, err := conn.Get(parent)
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return nodes, nil
		}
		return nil, err
	}
	nodes = append(nodes, znode{path: parent, version: stat.Version})

	children, _, err := conn.Children(parent)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		nodes, err = collect(conn, parent+"/"+child, nodes)
		if err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

func main() {
	servers := flag.String("servers", "localhost:22181", "comma separated zookeeper servers")
	base := flag.String("base", "/dslot", "znode tree to delete")
	dryRun := flag.Bool("dry-run", false, "only list the znodes")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	if !strings.HasPrefix(*base, "/dslot") {
		logger.Fatal("refusing to delete outside /dslot", zap.String("base", *base))
	}

	conn, _, err := zk.Connect(strings.Split(*servers, ","), 10*time.Second)
	if err != nil {
		logger.Fatal("failed to connect to zookeeper", zap.Error(err))
	}
	defer conn.Close()

	nodes, err := collect(conn, strings.TrimSuffix(*base, "/"), nil)
	if err != nil {
		logger.Fatal("failed to list znodes", zap.Error(err))
	}

	for i := len(nodes) - 1; i >= 0; i-- {
		node := nodes[i]
		logger.Info("deleting znode", zap.String("path", node.path), zap.Int32("version", node.version))
		if *dryRun {
			continue
		}
		if err = conn.Delete(node.path, node.version); err != nil {
			logger.Fatal("failed to delete znode", zap.String("path", node.path), zap.Error(err))
		}
	}
}
