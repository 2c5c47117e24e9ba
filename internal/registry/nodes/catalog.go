package nodes

import "github.com/gorax/workflow-core/internal/registry"

// Registrations returns the full reference node catalog as a
// registration list ready for registry.New. Callers that want their
// own production catalog can construct their own list instead — this
// one is scaffolding, not something external code must depend on.
func Registrations() []registry.Registration {
	formulaCache := NewFormulaCache(256)
	return []registry.Registration{
		{Meta: HTTPMeta(), Constructor: NewHTTPNode()},
		{Meta: TransformMeta(), Constructor: NewTransformNode()},
		{Meta: FormulaMeta(), Constructor: NewFormulaNode(formulaCache)},
		{Meta: ScriptMeta(), Constructor: NewScriptNode()},
		{Meta: DelayMeta(), Constructor: NewDelayNode()},
		{Meta: SlackMeta(), Constructor: NewSlackNode()},
		{Meta: EmailMeta(), Constructor: NewEmailNode()},
		{Meta: SMSMeta(), Constructor: NewSMSNode()},
		{Meta: MongoMeta(), Constructor: NewMongoNode()},
		{Meta: QueuePublishMeta(), Constructor: NewQueuePublishNode()},
		{Meta: LambdaMeta(), Constructor: NewLambdaNode()},
	}
}
