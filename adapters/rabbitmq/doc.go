// Package rabbitmq implements the upstream notification stream over an AMQP
// topic exchange, for deployments that relay MISP's notification feed
// through RabbitMQ. The routing key carries the upstream topic; the body is
// the verbatim notification payload.
package rabbitmq
