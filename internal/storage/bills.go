package storage

import "github.com/google/uuid"

// SaveBill stores a bill, generating an ID if needed.
func (s *Store) SaveBill(b Bill) (Bill, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = "Pending"
	}
	_, err := s.db.Exec(`INSERT INTO bills (id, username, month, amount, status, due_date) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.Username, b.Month, b.Amount, b.Status, b.DueDate)
	if err != nil {
		return Bill{}, err
	}
	return b, nil
}

// ListBills returns the bills of username, latest due date first.
func (s *Store) ListBills(username string) ([]Bill, error) {
	rows, err := s.db.Query(`SELECT id, username, month, amount, status, due_date FROM bills WHERE username = ? ORDER BY due_date DESC, rowid DESC`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []Bill
	for rows.Next() {
		var b Bill
		if err := rows.Scan(&b.ID, &b.Username, &b.Month, &b.Amount, &b.Status, &b.DueDate); err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}
