// Package docs provides generated OpenAPI documentation.
//
// ocrion API
//
//	@title			ocrion API
//	@version		1.0
//	@description	Schema-driven field extraction from scanned documents.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/ocrion
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g doc.go -d .,../internal/server/endpoints -o . --parseDependency --parseInternal --outputTypes go
