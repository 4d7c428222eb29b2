package echoapi

import (
	"io/ioutil"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/billing"
)

type billingApi struct {
	svc      billing.Service
	validate *validator.Validate
}

func registerBillingAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := billingApi{svc: deps.BillingSvc, validate: deps.Validate}

	g.POST("/create-payment-intent", api.createPaymentIntent, jwt)
	g.POST("/create-customer", api.createCustomer, jwt)
	g.GET("/payment-methods", api.paymentMethods, jwt)
	g.POST("/process-withdrawal", api.processWithdrawal, jwt, teacherMiddleware())
	// the provider authenticates via the signature header, not JWT
	g.POST("/stripe-webhook", api.webhook)
}

func (api *billingApi) createPaymentIntent(ctx echo.Context) error {
	var data billing.CreateIntent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CreateIntent")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	intent, err := api.svc.CreatePaymentIntent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating payment intent")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"clientSecret":    intent.ClientSecret,
		"paymentIntentId": intent.ID,
	})
}

func (api *billingApi) createCustomer(ctx echo.Context) error {
	var data billing.CreateCustomer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CreateCustomer")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	cust, err := api.svc.CreateCustomer(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating customer")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"customerId": cust.ID})
}

func (api *billingApi) paymentMethods(ctx echo.Context) error {
	customerID := ctx.QueryParam("customer_id")
	if customerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "customer_id is required")
	}

	methods, err := api.svc.ListPaymentMethods(ctx.Request().Context(), customerID)
	if err != nil {
		return errors.Wrap(err, "listing payment methods")
	}
	if methods == nil {
		methods = []billing.PaymentMethod{}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"paymentMethods": methods})
}

func (api *billingApi) processWithdrawal(ctx echo.Context) error {
	var data billing.Withdrawal
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Withdrawal")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	req, err := api.svc.ProcessWithdrawal(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "processing withdrawal")
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"transferId": req.TransferID,
	})
}

// webhook verifies the provider signature before anything else; an
// unverified payload is never dispatched.
func (api *billingApi) webhook(ctx echo.Context) error {
	payload, err := ioutil.ReadAll(ctx.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "reading payload")
	}

	evt, err := api.svc.VerifyWebhook(payload, ctx.Request().Header.Get("stripe-signature"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "signature verification failed")
	}

	if err = api.svc.HandleEvent(ctx.Request().Context(), evt); err != nil {
		return errors.Wrap(err, "handling webhook event")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"received": true})
}
