package couchbase

import (
	"fmt"
	"strings"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

// ConnectionManager handles Couchbase cluster and bucket connections
type ConnectionManager struct {
	cluster *gocb.Cluster
	bucket  *gocb.Bucket
}

// connectionString normalises http:// and bare host urls to the couchbase scheme
func connectionString(url string) string {
	switch {
	case strings.HasPrefix(url, "couchbase://"), strings.HasPrefix(url, "couchbases://"):
		return url
	case strings.HasPrefix(url, "http://"):
		return "couchbase://" + strings.TrimPrefix(url, "http://")
	case strings.HasPrefix(url, "https://"):
		return "couchbases://" + strings.TrimPrefix(url, "https://")
	default:
		return "couchbase://" + url
	}
}

// NewConnectionManager connects to the cluster and opens bucketName
func NewConnectionManager(url, username, password, bucketName string) (*ConnectionManager, error) {
	cluster, err := gocb.Connect(connectionString(url), gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	if err := cluster.WaitUntilReady(30*time.Second, nil); err != nil {
		return nil, fmt.Errorf("failed to wait for cluster: %w", err)
	}

	// The bucket and its collections are provisioned outside the gateway
	bucket := cluster.Bucket(bucketName)
	if err := bucket.WaitUntilReady(10*time.Second, nil); err != nil {
		return nil, fmt.Errorf("bucket '%s' is not accessible: %w", bucketName, err)
	}

	log.Info().
		Str("bucket", bucketName).
		Msg("Connected to Couchbase")

	return &ConnectionManager{
		cluster: cluster,
		bucket:  bucket,
	}, nil
}

// Close closes the Couchbase connection
func (cm *ConnectionManager) Close() error {
	return cm.cluster.Close(nil)
}

// Collection returns a collection of the default scope
func (cm *ConnectionManager) Collection(name string) *gocb.Collection {
	return cm.bucket.DefaultScope().Collection(name)
}
