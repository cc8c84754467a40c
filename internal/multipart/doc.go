// Package multipart decodes multipart/form-data request bodies into text
// fields and file parts.
package multipart
