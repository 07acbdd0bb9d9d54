/*
Package events provides the in-process event broker and the Alerter
interface for notable certificate and cluster conditions.

The broker fans events out to subscriber channels; slow subscribers
are skipped rather than blocking publishers. The certificate monitor
and renewal sweep emit through an Alerter; BrokerAlerter is the
default implementation and turns each alert into an Event. External
delivery (email, webhooks) subscribes to the broker and is out of
scope for the core.
*/
package events
