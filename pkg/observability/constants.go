package observability

const (
	AttrServiceName    = "service.name"
	AttrLLMModel       = "llm.model"
	AttrLLMTokensInput = "llm.tokens.input"
	AttrLLMTokensOut   = "llm.tokens.output"
	AttrCollection     = "rag.collection"
	AttrJobID          = "generator.job_id"
	AttrSessionID      = "tutor.session_id"
	AttrPhase          = "tutor.phase"
	AttrErrorType      = "error.type"

	SpanLLMRequest   = "core.llm_request"
	SpanLLMStream    = "core.llm_stream"
	SpanIngest       = "core.rag_ingest"
	SpanQuery        = "core.rag_query"
	SpanGenerateJob  = "core.generate_job"
	SpanPublish      = "core.publish"
	SpanTutorSend    = "core.tutor_send"
	SpanAnalystAudit = "core.analyst_audit"

	DefaultServiceName = "paideia"
)
