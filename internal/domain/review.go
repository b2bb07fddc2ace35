package domain

import "time"

// ReviewRecord is a customer review as stored in the system of record.
type ReviewRecord struct {
	ID           string
	Reference    string
	ReferenceID  string
	Rating       int
	CustomerNote *string
	SellerNote   *string
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// ReviewDocument is the review stored in the reviews index.
type ReviewDocument struct {
	ID           string  `json:"id"`
	Reference    string  `json:"reference"`
	ReferenceID  string  `json:"reference_id"`
	Rating       int     `json:"rating"`
	CustomerNote *string `json:"customer_note"`
	SellerNote   *string `json:"seller_note"`
}

// DocumentID implements Document.
func (d *ReviewDocument) DocumentID() string { return d.ID }
