// Package events provides in-process notifications for curation outcomes.
//
// Services emit a CurationEvent after a transaction commits, for example when
// an item is escalated to manual review or approved content is targeted by a
// mutation. Handlers react without the services knowing who listens, and a
// failing handler never undoes committed work.
//
// The primary components are:
// - CurationEvent: a committed curation outcome
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
package events
