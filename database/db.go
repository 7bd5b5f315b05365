package database

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/balazzarini/svelto-app/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createIntegrationTable(db)
	if err != nil {
		return nil, err
	}
	err = createTransactionTable(db)
	if err != nil {
		return nil, err
	}
	err = createReceivableTable(db)
	if err != nil {
		return nil, err
	}
	err = createErpCustomerTable(db)
	if err != nil {
		return nil, err
	}
	err = createCandidateTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// createTransactionTable creates a PostgreSQL table for the Transaction struct
func createTransactionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id SERIAL PRIMARY KEY,
			transaction_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			integration_id TEXT NOT NULL REFERENCES integrations(integration_id),
			gateway_id TEXT NOT NULL,
			external_reference TEXT,
			operation_type TEXT,
			description TEXT,
			amount_gross NUMERIC(18,2) NOT NULL DEFAULT 0,
			amount_net NUMERIC(18,2) NOT NULL DEFAULT 0,
			amount_paid_by_customer NUMERIC(18,2) NOT NULL DEFAULT 0,
			fee_mdr NUMERIC(18,2) NOT NULL DEFAULT 0,
			fee_financing NUMERIC(18,2) NOT NULL DEFAULT 0,
			fee_shipping NUMERIC(18,2) NOT NULL DEFAULT 0,
			fee_taxes NUMERIC(18,2) NOT NULL DEFAULT 0,
			fee_coupon NUMERIC(18,2) NOT NULL DEFAULT 0,
			fee_total NUMERIC(18,2) NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'PENDING',
			financial_status TEXT NOT NULL DEFAULT 'OPEN',
			gateway_status TEXT,
			gateway_detail TEXT,
			money_release_status TEXT,
			money_release_date TIMESTAMP,
			money_void_date TIMESTAMP,
			erp_id TEXT,
			erp_status TEXT,
			match_description TEXT,
			payer_name TEXT,
			payer_document TEXT,
			payer_email TEXT,
			payment_method TEXT,
			installments INT NOT NULL DEFAULT 1,
			date_event TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (integration_id, gateway_id)
		)
	`)
	log.Println(err)
	return err
}

// createReceivableTable creates a PostgreSQL table for the Receivable struct
func createReceivableTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS receivables (
			id SERIAL PRIMARY KEY,
			receivable_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			integration_id TEXT NOT NULL REFERENCES integrations(integration_id),
			erp_id TEXT NOT NULL,
			customer_code TEXT,
			customer_name TEXT,
			customer_doc TEXT,
			document_number TEXT,
			nsu TEXT,
			external_ref TEXT,
			category_code TEXT,
			bank_account_id TEXT,
			amount NUMERIC(18,2) NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'EM ABERTO',
			emission_date TIMESTAMP NOT NULL,
			due_date TIMESTAMP,
			payment_date TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (integration_id, erp_id)
		)
	`)
	log.Println(err)
	return err
}

// createCandidateTable creates a PostgreSQL table for the Candidate struct
func createCandidateTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candidates (
			id SERIAL PRIMARY KEY,
			candidate_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			transaction_id TEXT NOT NULL REFERENCES transactions(transaction_id),
			receivable_id TEXT NOT NULL REFERENCES receivables(receivable_id),
			score INT NOT NULL,
			reasons JSONB,
			erp_id TEXT NOT NULL,
			customer_name TEXT,
			amount NUMERIC(18,2) NOT NULL DEFAULT 0,
			emission_date TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}

func createIntegrationTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS integrations (
			id SERIAL PRIMARY KEY,
			integration_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			name TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			encrypted_access_token TEXT,
			encrypted_app_secret TEXT,
			settings JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	log.Println(err)
	return err
}

// createErpCustomerTable creates a PostgreSQL table for the ErpCustomer struct
func createErpCustomerTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS erp_customers (
			id SERIAL PRIMARY KEY,
			customer_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			integration_id TEXT NOT NULL REFERENCES integrations(integration_id),
			erp_code TEXT NOT NULL,
			name TEXT,
			trade_name TEXT,
			document TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (integration_id, erp_code)
		)
	`)
	log.Println(err)
	return err
}
