package postgres

// schema 建立帳本需要的資料表
// CHECK 約束是最後一道防線，帳本本身在 UPDATE 條件內就會擋下超額扣款
const schema = `
CREATE TABLE IF NOT EXISTS customers (
    id            BIGINT PRIMARY KEY,
    account_limit BIGINT NOT NULL CHECK (account_limit >= 0),
    balance       BIGINT NOT NULL DEFAULT 0,
    sequence      BIGINT NOT NULL DEFAULT 0,
    CONSTRAINT customers_balance_within_limit CHECK (balance >= -account_limit)
);

CREATE TABLE IF NOT EXISTS transactions (
    id          BIGSERIAL PRIMARY KEY,
    ref_id      UUID NOT NULL UNIQUE,
    customer_id BIGINT NOT NULL REFERENCES customers (id),
    sequence    BIGINT NOT NULL,
    amount      BIGINT NOT NULL CHECK (amount > 0),
    kind        CHAR(1) NOT NULL CHECK (kind IN ('c', 'd')),
    description VARCHAR(10) NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL,
    UNIQUE (customer_id, sequence)
);
`

const (
	seedCustomerQuery = `
INSERT INTO customers (id, account_limit, balance)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`

	// applyDeltaQuery 原子的「讀取-檢查-寫入」：條件不成立時不會更新任何資料列
	// $3 為 true 代表入帳，入帳不檢查額度
	applyDeltaQuery = `
UPDATE customers
SET balance = balance + $2, sequence = sequence + 1
WHERE id = $1 AND ($3 OR balance + $2 >= -account_limit)
RETURNING account_limit, balance, sequence`

	customerExistsQuery = `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`

	insertTransactionQuery = `
INSERT INTO transactions (ref_id, customer_id, sequence, amount, kind, description, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	selectCustomerQuery = `SELECT account_limit, balance FROM customers WHERE id = $1`

	selectLastTransactionsQuery = `
SELECT ref_id, sequence, amount, kind, description, occurred_at
FROM transactions
WHERE customer_id = $1
ORDER BY sequence DESC
LIMIT $2`

	selectAllCustomersQuery = `SELECT id, account_limit, balance FROM customers`
)
