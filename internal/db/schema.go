package db

const schemaSQL = `
-- ===========================================================================
-- DISCOVERED INPUTS (cold-start seed for receivers)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS discovered_inputs (
  device_id TEXT NOT NULL,
  input_number INTEGER NOT NULL,
  name TEXT NOT NULL,
  updated_at TEXT NOT NULL DEFAULT (datetime('now')),
  PRIMARY KEY (device_id, input_number)
);

-- ===========================================================================
-- RECEIVER EVENTS (connection history and device faults)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS receiver_events (
  event_id TEXT PRIMARY KEY,
  timestamp TEXT NOT NULL DEFAULT (datetime('now')),
  device_id TEXT NOT NULL,
  type TEXT NOT NULL,
  level TEXT NOT NULL DEFAULT 'INFO',
  message TEXT NOT NULL,
  payload TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_receiver_events_timestamp ON receiver_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_receiver_events_device ON receiver_events(device_id);
CREATE INDEX IF NOT EXISTS idx_receiver_events_type ON receiver_events(type);
`
