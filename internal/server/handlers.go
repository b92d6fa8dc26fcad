package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfeidau/docsign/internal/auth"
	httpmiddleware "github.com/wolfeidau/docsign/internal/http"
	"github.com/wolfeidau/docsign/internal/models"
	"github.com/wolfeidau/docsign/internal/store"
)

// Content encodings used by JSON bodies. Content that is not valid UTF-8 travels as base64 so the
// bytes survive the round trip and still match their signature.
const (
	ContentEncodingUTF8   = "utf8"
	ContentEncodingBase64 = "base64"
)

// DocumentResponse is the JSON form of a document. ContentEncoding says how Content is encoded.
type DocumentResponse struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Content           string     `json:"content"`
	ContentEncoding   string     `json:"contentEncoding"`
	OwnerID           string     `json:"ownerId"`
	Status            string     `json:"status"`
	Signature         string     `json:"signature,omitempty"`
	SignatureEncoding string     `json:"signatureEncoding,omitempty"`
	Certificate       string     `json:"certificate,omitempty"`
	SignedBy          string     `json:"signedBy,omitempty"`
	SignedAt          *time.Time `json:"signedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func newDocumentResponse(doc *models.Document) DocumentResponse {
	content, contentEncoding := encodeContent(doc.Content)
	resp := DocumentResponse{
		ID:              doc.DocumentID.String(),
		Title:           doc.Title,
		Content:         content,
		ContentEncoding: contentEncoding,
		OwnerID:         doc.OwnerID,
		Status:          string(doc.State()),
		Certificate:     doc.CertificatePEM,
		SignedBy:        doc.SignedBy,
		SignedAt:        doc.SignedAt,
		CreatedAt:       doc.CreatedAt,
	}
	if doc.Signature != nil {
		resp.Signature = doc.Signature.Value
		resp.SignatureEncoding = string(doc.Signature.Encoding)
	}
	return resp
}

func encodeContent(content []byte) (string, string) {
	if utf8.Valid(content) {
		return string(content), ContentEncodingUTF8
	}
	return base64.StdEncoding.EncodeToString(content), ContentEncodingBase64
}

// decodeContent reverses encodeContent. An empty encoding means utf8.
func decodeContent(content, encoding string) ([]byte, error) {
	switch encoding {
	case "", ContentEncodingUTF8:
		return []byte(content), nil
	case ContentEncodingBase64:
		data, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, fmt.Errorf("%w: content is not valid base64", httpmiddleware.ErrBadRequest)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unknown content encoding %q", httpmiddleware.ErrBadRequest, encoding)
	}
}

func newDocumentList(docs []*models.Document) []DocumentResponse {
	out := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, newDocumentResponse(doc))
	}
	return out
}

// CertificateResponse is the JSON form of a registered certificate.
type CertificateResponse struct {
	SerialNumber string    `json:"serialNumber"`
	OwnerID      string    `json:"ownerId"`
	Role         string    `json:"role"`
	Fingerprint  string    `json:"fingerprint"`
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	IsCA         bool      `json:"isCA"`
	Certificate  string    `json:"certificate"`
	NotBefore    time.Time `json:"notBefore"`
	NotAfter     time.Time `json:"notAfter"`
}

func newCertificateResponse(meta *store.CertMetadata) CertificateResponse {
	return CertificateResponse{
		SerialNumber: meta.SerialNumber,
		OwnerID:      meta.OwnerID,
		Role:         meta.Role,
		Fingerprint:  meta.Fingerprint,
		Subject:      meta.SubjectDN,
		Issuer:       meta.IssuerDN,
		IsCA:         meta.IsCA,
		Certificate:  meta.CertificatePEM,
		NotBefore:    meta.IssuedAt,
		NotAfter:     meta.ExpiresAt,
	}
}

type createDocumentBody struct {
	Title           string       `json:"title"`
	Content         string       `json:"content"`
	ContentEncoding string       `json:"contentEncoding,omitempty"`
	Sign            *SignRequest `json:"sign,omitempty"`
}

type verifyBody struct {
	Content         string `json:"content"`
	ContentEncoding string `json:"contentEncoding,omitempty"`
	Signature       string `json:"signature"`
	Encoding        string `json:"encoding"`
	Certificate     string `json:"certificate"`
	PublicKey       string `json:"publicKey"`
}

func (s *Server) issueKeys(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	var req IssueKeysRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if chain, err := queryBool(r, "chain"); err != nil {
		writeError(w, r, err)
		return
	} else if chain {
		req.Chain = true
	}

	data, err := s.keys.Issue(r.Context(), principal, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpmiddleware.WriteAttachment(w, "keys.zip", "application/zip", data)
}

func (s *Server) deleteKeys(w http.ResponseWriter, r *http.Request) {
	if err := s.keys.DeleteKeys(r.Context(), auth.PrincipalFromContext(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listCertificates(w http.ResponseWriter, r *http.Request) {
	if fingerprint := r.URL.Query().Get("fingerprint"); fingerprint != "" {
		s.findCertificate(w, r, fingerprint)
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	owner := auth.PrincipalFromContext(r.Context()).UserID
	if r.URL.Query().Get("owner") == "all" {
		owner = ""
	}

	certs, err := s.keys.ListCertificates(r.Context(), owner, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]CertificateResponse, 0, len(certs))
	for _, meta := range certs {
		out = append(out, newCertificateResponse(meta))
	}
	httpmiddleware.WriteJSON(w, http.StatusOK, out)
}

// findCertificate answers a fingerprint lookup with a list of zero or one certificates.
func (s *Server) findCertificate(w http.ResponseWriter, r *http.Request, fingerprint string) {
	out := make([]CertificateResponse, 0, 1)

	meta, err := s.keys.FindCertificate(r.Context(), fingerprint)
	switch {
	case errors.Is(err, store.ErrCertNotFound):
	case err != nil:
		writeError(w, r, err)
		return
	default:
		out = append(out, newCertificateResponse(meta))
	}

	httpmiddleware.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) getCertificate(w http.ResponseWriter, r *http.Request) {
	meta, err := s.keys.GetCertificate(r.Context(), strings.ToLower(chi.URLParam(r, "serial")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpmiddleware.WriteJSON(w, http.StatusOK, newCertificateResponse(meta))
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest

	if isMultipart(r) {
		form, err := readMultipart(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		req.Title = form.value("title")
		req.Content = form.bytes("content")
		if form.value("privateKey") != "" || form.value("signature") != "" {
			req.Sign = &SignRequest{
				PrivateKeyPEM:  form.value("privateKey"),
				Passphrase:     form.value("passphrase"),
				Signature:      form.value("signature"),
				Encoding:       form.value("encoding"),
				CertificatePEM: form.value("certificate"),
			}
		}
	} else {
		var body createDocumentBody
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		content, err := decodeContent(body.Content, body.ContentEncoding)
		if err != nil {
			writeError(w, r, err)
			return
		}
		req.Title = body.Title
		req.Content = content
		req.Sign = body.Sign
	}

	doc, err := s.documents.Create(r.Context(), auth.PrincipalFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpmiddleware.WriteJSON(w, http.StatusCreated, newDocumentResponse(doc))
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	s.writeDocuments(w, r, "")
}

func (s *Server) listMyDocuments(w http.ResponseWriter, r *http.Request) {
	s.writeDocuments(w, r, auth.PrincipalFromContext(r.Context()).UserID)
}

func (s *Server) writeDocuments(w http.ResponseWriter, r *http.Request, ownerID string) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	docs, err := s.documents.List(r.Context(), ownerID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpmiddleware.WriteJSON(w, http.StatusOK, newDocumentList(docs))
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := s.documents.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpmiddleware.WriteJSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (s *Server) signDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req SignRequest
	if isMultipart(r) {
		form, err := readMultipart(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		req = SignRequest{
			PrivateKeyPEM:  form.value("privateKey"),
			Passphrase:     form.value("passphrase"),
			Signature:      form.value("signature"),
			Encoding:       form.value("encoding"),
			CertificatePEM: form.value("certificate"),
		}
	} else if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := s.documents.Sign(r.Context(), auth.PrincipalFromContext(r.Context()), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpmiddleware.WriteJSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (s *Server) validateDocument(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var upload *DetachedSignature
	if isMultipart(r) {
		form, err := readMultipart(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		upload = &DetachedSignature{
			Signature:      form.value("signature"),
			Encoding:       form.value("encoding"),
			CertificatePEM: form.value("certificate"),
		}
	} else {
		var body SignRequest
		if err := decodeOptionalJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		if body.Signature != "" || body.CertificatePEM != "" {
			upload = &DetachedSignature{
				Signature:      body.Signature,
				Encoding:       body.Encoding,
				CertificatePEM: body.CertificatePEM,
			}
		}
	}

	result, err := s.documents.Validate(r.Context(), id, upload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpmiddleware.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) downloadSignature(w http.ResponseWriter, r *http.Request) {
	id, err := documentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, filename, err := s.documents.SignatureBundle(r.Context(), auth.PrincipalFromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpmiddleware.WriteAttachment(w, filename, "application/zip", data)
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest

	if isMultipart(r) {
		form, err := readMultipart(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		req = VerifyRequest{
			Content:        form.bytes("content"),
			Signature:      form.value("signature"),
			Encoding:       form.value("encoding"),
			CertificatePEM: form.value("certificate"),
			PublicKeyPEM:   form.value("publicKey"),
		}
	} else {
		var body verifyBody
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, r, err)
			return
		}
		content, err := decodeContent(body.Content, body.ContentEncoding)
		if err != nil {
			writeError(w, r, err)
			return
		}
		req = VerifyRequest{
			Content:        content,
			Signature:      body.Signature,
			Encoding:       body.Encoding,
			CertificatePEM: body.Certificate,
			PublicKeyPEM:   body.PublicKey,
		}
	}

	result, err := s.documents.Verify(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpmiddleware.WriteJSON(w, http.StatusOK, result)
}

func documentID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		// malformed ids cannot name a document
		return uuid.Nil, store.ErrDocumentNotFound
	}
	return id, nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: invalid limit %q", httpmiddleware.ErrBadRequest, raw)
	}
	return limit, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: invalid %s %q", httpmiddleware.ErrBadRequest, name, raw)
	}
	return v, nil
}

func decodeJSON(r *http.Request, v any) error {
	return decodeBody(r, v, false)
}

// decodeOptionalJSON accepts an empty body as the zero value.
func decodeOptionalJSON(r *http.Request, v any) error {
	return decodeBody(r, v, true)
}

func decodeBody(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if err == nil {
		return nil
	}
	if optional && errors.Is(err, io.EOF) {
		return nil
	}

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return fmt.Errorf("%w: invalid JSON body: %v", httpmiddleware.ErrBadRequest, err)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

type multipartForm struct {
	values map[string][]byte
}

// readMultipart loads text fields and file parts into memory. A file part and a text field of
// the same name are interchangeable.
func readMultipart(r *http.Request) (*multipartForm, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", httpmiddleware.ErrBadRequest, err)
	}

	form := &multipartForm{values: make(map[string][]byte)}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", httpmiddleware.ErrBadRequest, err)
		}

		name := part.FormName()
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", httpmiddleware.ErrBadRequest, err)
		}
		if name == "document" {
			name = "content"
		}
		form.values[name] = data
	}

	return form, nil
}

func (f *multipartForm) value(name string) string {
	return strings.TrimSpace(string(f.values[name]))
}

// bytes returns the raw part so content is signed exactly as uploaded.
func (f *multipartForm) bytes(name string) []byte {
	return f.values[name]
}
