package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- CHOICE TABLE (one verdict per chart per session)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS choice SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS session_id ON choice TYPE string;
    DEFINE FIELD IF NOT EXISTS chart_index ON choice TYPE int ASSERT $value >= 0;
    DEFINE FIELD IF NOT EXISTS chart_data ON choice TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS choice ON choice TYPE string ASSERT $value IN ["green", "red"];
    DEFINE FIELD IF NOT EXISTS timestamp ON choice TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS created ON choice TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS choice_session ON choice FIELDS session_id;
    DEFINE INDEX IF NOT EXISTS choice_session_chart ON choice FIELDS session_id, chart_index UNIQUE;

    -- ==========================================================================
    -- RANKING TABLE (final podium of a finished tournament)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS ranking SCHEMALESS;
    DEFINE INDEX IF NOT EXISTS ranking_session ON ranking FIELDS session_id UNIQUE;
`
