package stores

import (
	"os"

	"canvas-sync/core"
	"canvas-sync/stores/aws"
	"canvas-sync/stores/filesystem"
	"canvas-sync/stores/memory"
	"canvas-sync/stores/sqlite"

	"github.com/sirupsen/logrus"
)

// GetStore selects the update store backend from the STORAGE_TYPE
// environment variable. The in-memory store is the default.
func GetStore() core.UpdateStore {
	storageType := os.Getenv("STORAGE_TYPE")
	var store core.UpdateStore

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := os.Getenv("LOCAL_STORAGE_PATH")
		if basePath == "" {
			basePath = "./data"
		}
		storageField["basePath"] = basePath
		store = filesystem.NewStore(basePath)
	case "sqlite":
		dataSourceName := os.Getenv("DATA_SOURCE_NAME")
		if dataSourceName == "" {
			dataSourceName = "canvas-sync.db"
		}
		storageField["dataSourceName"] = dataSourceName
		store = sqlite.NewStore(dataSourceName)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = bucketName
		store = aws.NewStore(bucketName)
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
