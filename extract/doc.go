// Package extract implements the LLM-backed summarization and
// entity/relationship extraction steps of ingestion. Both are wrappers
// over a chat provider with fixed prompts and strict output validation;
// ingestion treats their failures as degradable, so parse errors here
// never abort a pipeline.
package extract
