package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGInfo is the subset of a Postgres error worth logging.
type PGInfo struct {
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Diagnostics flattens an error chain for structured logs. It is never sent
// to clients.
type Diagnostics struct {
	Message   string   `json:"message"`
	Code      Code     `json:"code,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
	Chain     []string `json:"chain,omitempty"`
	Postgres  *PGInfo  `json:"postgres,omitempty"`
}

// Diagnose walks err and collects its typed code, wrap chain and any driver
// error found along the way.
func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}

	d := Diagnostics{Message: err.Error(), Postgres: postgresInfo(err)}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Retryable = MetadataFor(d.Code).Retryable
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields renders the diagnostics as logger fields.
func (d Diagnostics) Fields() map[string]any {
	fields := map[string]any{
		"error":       d.Message,
		"error_code":  d.Code,
		"error_chain": d.Chain,
	}
	if d.Postgres != nil {
		fields["pg_code"] = d.Postgres.Code
		fields["pg_constraint"] = d.Postgres.Constraint
		fields["pg_table"] = d.Postgres.Table
		fields["pg_detail"] = d.Postgres.Detail
		fields["pg_message"] = d.Postgres.Message
	}
	return fields
}

func postgresInfo(err error) *PGInfo {
	if pgErr := (*pgconn.PgError)(nil); errors.As(err, &pgErr) {
		return &PGInfo{
			Code:       pgErr.Code,
			Constraint: pgErr.ConstraintName,
			Table:      pgErr.TableName,
			Column:     pgErr.ColumnName,
			Detail:     pgErr.Detail,
			Message:    pgErr.Message,
		}
	}
	if pqErr := (*pq.Error)(nil); errors.As(err, &pqErr) {
		return &PGInfo{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
