package domain

// DataRecord is one ciphertext in an identity's ledger. Cyphertext is nil once
// the record has been deleted.
type DataRecord struct {
	ID         int64    `gorm:"primaryKey;autoIncrement:false"`
	DID        Identity `gorm:"column:did;primaryKey"`
	Cyphertext []byte
}

func (DataRecord) TableName() string { return "data" }

type Deletion struct {
	ID        int64    `gorm:"primaryKey;autoIncrement:false"`
	DID       Identity `gorm:"column:did;primaryKey"`
	DataID    int64    `gorm:"not null"`
	Signature *string
}

func (Deletion) TableName() string { return "deletions" }

// IndexEntry ties an opaque client-chosen token to a record.
type IndexEntry struct {
	DataID      int64    `gorm:"not null;index:idx_dei_record,priority:2"`
	DataDID     Identity `gorm:"column:data_did;not null;index:idx_dei_record,priority:1;index:idx_dei_token,priority:1"`
	Cipherindex []byte   `gorm:"column:cipherindex;not null;index:idx_dei_token,priority:2"`
}

func (IndexEntry) TableName() string { return "data_encrypted_indexes" }
