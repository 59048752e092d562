package domain

type Entity struct {
	DID          Identity `gorm:"column:did;primaryKey" json:"did"`
	DataCount    int64    `gorm:"not null;default:0" json:"dataCount"`
	DeletedCount int64    `gorm:"not null;default:0" json:"deletedCount"`
	Blacklisted  bool     `gorm:"not null;default:false" json:"blacklisted"`
	Admin        bool     `gorm:"not null;default:false" json:"admin"`
	// Key is the public key bound on first validation by key-based schemes.
	Key []byte `gorm:"column:public_key" json:"-"`
}

func (Entity) TableName() string { return "entities" }
