package database

import "go.mongodb.org/mongo-driver/mongo"

// Table 由每个持久化模型实现，集合名集中在模型上。
type Table interface {
	GetTableName() string
}

func Collection(db *mongo.Database, t Table) *mongo.Collection {
	return db.Collection(t.GetTableName())
}
