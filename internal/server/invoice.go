package server

import (
	"net/http"
	"strings"

	invoicedomain "github.com/dev-orchid/shiksha-sub001/internal/invoice/domain"
	"github.com/dev-orchid/shiksha-sub001/pkg/db/pagination"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type listInvoicesQuery struct {
	StudentID string `form:"student_id"`
	Status    string `form:"status"`
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type cancelInvoiceRequest struct {
	Reason string `json:"reason"`
}

type lateFeeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	var req invoicedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.invoiceSvc.Create(c.Request.Context(), schoolID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": view})
}

func (s *Server) ListInvoices(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	studentID, err := parseOptionalSnowflakeID(query.StudentID)
	if err != nil {
		AbortWithError(c, newValidationError("student_id", "invalid_student_id", "invalid student_id"))
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), schoolID, invoicedomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		StudentID: studentID,
		Status:    invoicedomain.Status(strings.ToLower(strings.TrimSpace(query.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) GetInvoice(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	invoiceID, ok := pathID(c, "id")
	if !ok {
		return
	}

	view, err := s.invoiceSvc.Get(c.Request.Context(), schoolID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	invoiceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelInvoiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	view, err := s.invoiceSvc.Cancel(c.Request.Context(), schoolID, invoiceID, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) AssessLateFee(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	invoiceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req lateFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.invoiceSvc.AssessLateFee(c.Request.Context(), schoolID, invoiceID, req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) ListInvoicePayments(c *gin.Context) {
	schoolID, ok := mustSchool(c)
	if !ok {
		return
	}
	invoiceID, ok := pathID(c, "id")
	if !ok {
		return
	}

	payments, err := s.paymentSvc.ListPayments(c.Request.Context(), schoolID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": payments})
}
