package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- ACCOUNT TABLE
    -- ==========================================================================
    -- Record key is the normalized e-mail, so CREATE fails on duplicates.
    DEFINE TABLE IF NOT EXISTS account SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS email ON account TYPE string;
    DEFINE FIELD IF NOT EXISTS password_hash ON account TYPE string;
    DEFINE FIELD IF NOT EXISTS verified ON account TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS verification_token ON account TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created ON account TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS account_email ON account FIELDS email UNIQUE;

    -- ==========================================================================
    -- TURN TABLE (chat history)
    -- ==========================================================================
    -- Record key is a ULID, so ORDER BY id is insertion order.
    DEFINE TABLE IF NOT EXISTS turn SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner ON turn TYPE string;
    DEFINE FIELD IF NOT EXISTS role ON turn TYPE string ASSERT $value IN ["user", "assistant"];
    DEFINE FIELD IF NOT EXISTS content ON turn TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON turn TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS turn_owner ON turn FIELDS owner;
`
