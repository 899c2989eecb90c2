// Package mail delivers combined log mails over SMTP, typically to the
// Amazon SES SMTP interface.
package mail
