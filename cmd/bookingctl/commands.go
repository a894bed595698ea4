package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/autoecole-booking/internal/model"
	"github.com/mmeshcher/autoecole-booking/internal/orchestrator"
	"github.com/mmeshcher/autoecole-booking/internal/service"
	"github.com/mmeshcher/autoecole-booking/internal/validation"
)

var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(a *app, ctx context.Context, args []string) error
}

func commands() []command {
	return []command{
		{"login", "sign in and store the session", (*app).login},
		{"register", "create an account and store the session", (*app).register},
		{"logout", "forget the stored session", (*app).logout},
		{"whoami", "show the current user and dashboard", (*app).whoami},
		{"schools", "list driving schools or the offers of one school", (*app).listSchools},
		{"book", "book and pay an offer", (*app).book},
		{"bookings", "list my bookings", (*app).listBookings},
		{"invoices", "list my invoices", (*app).listInvoices},
		{"pay-invoice", "pay a pending invoice", (*app).payInvoice},
		{"orphans", "list unconfirmed bookings left by closed flows", (*app).listOrphans},
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return errUsage
	}
	for _, c := range commands() {
		if c.name == args[0] {
			return c.run(a, ctx, args[1:])
		}
	}
	fmt.Fprintf(a.out, "unknown command %q\n\n", args[0])
	a.usage()
	return errUsage
}

func (a *app) usage() {
	fmt.Fprintln(a.out, "usage: bookingctl [global flags] <command> [flags]")
	fmt.Fprintln(a.out)
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, c := range commands() {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	tw.Flush()
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errUsage
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func (a *app) currentUser() (model.User, error) {
	user, ok := a.holder.User()
	if !ok {
		return model.User{}, errors.New(orchestrator.MsgLoginRequired)
	}
	return user, nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := a.flagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	resp, err := a.auth.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s (%s)\n", resp.User.FullName(), resp.User.Role)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := a.flagSet("register")
	var req model.RegisterRequest
	fs.StringVar(&req.Email, "email", "", "account email")
	fs.StringVar(&req.Password, "password", "", "account password")
	fs.StringVar(&req.FirstName, "first", "", "first name")
	fs.StringVar(&req.LastName, "last", "", "last name")
	fs.StringVar(&req.SchoolName, "school", "", "school name for SCHOOL_ADMIN accounts")
	role := fs.String("role", string(model.RoleStudent), "STUDENT or SCHOOL_ADMIN")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	r, err := model.ParseRole(strings.ToUpper(*role))
	if err != nil {
		return err
	}
	req.Role = r

	resp, err := a.auth.Register(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "registered %s (%s)\n", resp.User.Email, resp.User.Role)
	return nil
}

func (a *app) logout(ctx context.Context, _ []string) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func (a *app) whoami(_ context.Context, _ []string) error {
	user, ok := a.holder.User()
	if !ok {
		fmt.Fprintln(a.out, "not logged in")
		return nil
	}

	dashboard := model.VisitRole(user.Role, model.RoleCases[string]{
		Student:     func() string { return "student dashboard: bookings and invoices" },
		SchoolAdmin: func() string { return "school dashboard: school invoices" },
		Visitor:     func() string { return "public catalogue" },
	})
	fmt.Fprintf(a.out, "%s <%s>\nrole: %s\n%s\n", user.FullName(), user.Email, user.Role, dashboard)
	return nil
}

func (a *app) listSchools(ctx context.Context, args []string) error {
	fs := a.flagSet("schools")
	city := fs.String("city", "", "filter by city")
	id := fs.String("id", "", "show the offers of one school")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if *id != "" {
		offers, err := a.schools.Offers(ctx, *id)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "ID\tOFFER\tHOURS\tPRICE")
		for _, o := range offers {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", o.ID, o.Name, o.Hours, formatAmount(o.Price))
		}
		return nil
	}

	schools, err := a.schools.List(ctx, *city)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "ID\tSCHOOL\tCITY\tFROM")
	for _, s := range schools {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.City, formatAmount(s.Price))
	}
	return nil
}

func (a *app) book(ctx context.Context, args []string) error {
	fs := a.flagSet("book")
	schoolID := fs.String("school", "", "school id")
	offerID := fs.String("offer", "", "offer id")
	method := fs.String("method", string(model.PaymentMethodMTNMoMo), "MTN_MOMO, ORANGE_MONEY, CARD or CASH")
	var d orchestrator.Details
	fs.StringVar(&d.Date, "date", "", "lesson date, YYYY-MM-DD, "+validation.MinBookingDate(time.Now())+" or later")
	fs.StringVar(&d.Time, "time", orchestrator.DefaultTimeSlot, "lesson time, HH:MM")
	fs.StringVar(&d.Name, "name", "", "contact name")
	fs.StringVar(&d.Phone, "phone", "", "contact phone")
	fs.StringVar(&d.Email, "email", "", "contact email")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *schoolID == "" {
		return fmt.Errorf("%w: -school is required", errUsage)
	}

	school, err := a.schools.Get(ctx, *schoolID)
	if err != nil {
		return err
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(a.logger),
		orchestrator.WithPaymentDelay(a.cfg.PaymentDelay),
		orchestrator.WithNotifier(printNotifier(a.out)),
	}
	if a.journal != nil {
		opts = append(opts, orchestrator.WithJournal(a.journal))
	}
	if *offerID != "" {
		offer, ok, err := a.schools.FindOffer(ctx, school.ID, *offerID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("offer %s not found in school %s", *offerID, school.ID)
		}
		opts = append(opts, orchestrator.WithOffer(offer))
	}

	flow := orchestrator.New(a.holder, a.bookings, school, opts...)
	defer flow.Close(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() {
		a.logger.Info("booking interrupted")
		flow.Close(context.WithoutCancel(ctx))
	})
	defer stop()

	if u, ok := a.holder.User(); ok {
		if d.Name == "" {
			d.Name = u.FullName()
		}
		if d.Email == "" {
			d.Email = u.Email
		}
	}
	if err := flow.SetDetails(d); err != nil {
		return err
	}

	if err := flow.Advance(ctx); err != nil {
		return err
	}

	snap := flow.Snapshot()
	fmt.Fprintf(a.out, "booking %s held: %s at %s on %s %s, %s\n",
		snap.BookingID, snap.OfferTitle, snap.School.Name, snap.Details.Date, snap.Details.Time,
		formatAmount(snap.DisplayPrice))
	if a.cfg.PaymentDelay > 0 {
		fmt.Fprintf(a.out, "processing %s payment...\n", *method)
	}

	if err := flow.Pay(ctx, model.PaymentMethod(strings.ToUpper(*method))); err != nil {
		return err
	}

	snap = flow.Snapshot()
	if snap.Booking != nil {
		a.logger.Info("booking completed",
			zap.String("booking_id", snap.Booking.ID),
			zap.String("status", string(snap.Booking.Status)),
		)
	}
	return nil
}

func (a *app) listBookings(ctx context.Context, _ []string) error {
	user, err := a.currentUser()
	if err != nil {
		return err
	}

	bookings, err := a.bookings.ListMine(ctx, user.ID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "ID\tSCHOOL\tOFFER\tDATE\tTIME\tSTATUS")
	for _, b := range bookings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", b.ID, b.School.Name, b.Offer.Name, b.Date, b.Time, b.Status)
	}
	return nil
}

func (a *app) listInvoices(ctx context.Context, args []string) error {
	fs := a.flagSet("invoices")
	schoolID := fs.String("school", "", "list the invoices of a school (SCHOOL_ADMIN)")
	id := fs.String("id", "", "show a single invoice")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	user, err := a.currentUser()
	if err != nil {
		return err
	}

	if *id != "" {
		inv, err := a.invoices.Get(ctx, *id)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "invoice %s  booking %s  %s  %s  %s\n",
			inv.ID, inv.BookingID, inv.Booking.OfferName, formatAmount(inv.Amount), inv.Status)
		if inv.Status == model.InvoiceStatusPaid {
			fmt.Fprintf(a.out, "paid by %s, reference %s\n", inv.PaymentMethod, inv.PaymentReference)
		}
		return nil
	}

	var invoices []model.Invoice
	if *schoolID == "" && user.Role == model.RoleSchoolAdmin {
		*schoolID = user.SchoolID
	}
	if *schoolID != "" {
		invoices, err = a.invoices.ListBySchool(ctx, *schoolID)
	} else {
		invoices, err = a.invoices.ListMine(ctx, user.ID)
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBOOKING\tOFFER\tAMOUNT\tSTATUS\tMETHOD")
	for _, inv := range invoices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			inv.ID, inv.BookingID, inv.Booking.OfferName, formatAmount(inv.Amount), inv.Status, inv.PaymentMethod)
	}
	tw.Flush()

	t := service.Totals(invoices)
	fmt.Fprintf(a.out, "pending: %s  paid: %s\n", formatAmount(t.Pending), formatAmount(t.Paid))
	return nil
}

func (a *app) payInvoice(ctx context.Context, args []string) error {
	fs := a.flagSet("pay-invoice")
	id := fs.String("id", "", "invoice id")
	method := fs.String("method", string(model.PaymentMethodMTNMoMo), "MTN_MOMO, ORANGE_MONEY, CARD or CASH")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: -id is required", errUsage)
	}

	pm := model.PaymentMethod(strings.ToUpper(*method))
	if !pm.Valid() {
		return errors.New(orchestrator.MsgInvalidMethod)
	}

	inv, err := a.invoices.Pay(ctx, *id, pm, service.NewPaymentReference(time.Now()))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "invoice %s %s (%s)\n", inv.ID, inv.Status, inv.PaymentReference)
	return nil
}

func (a *app) listOrphans(ctx context.Context, args []string) error {
	fs := a.flagSet("orphans")
	olderThan := fs.Duration("older", time.Hour, "only attempts not updated for this long")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if a.journal == nil {
		return errors.New("flow journal is not configured, set DATABASE_URI")
	}

	attempts, err := a.journal.ListOrphans(ctx, *olderThan)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	fmt.Fprintln(tw, "BOOKING\tUSER\tSCHOOL\tDATE\tSTATUS\tUPDATED\tLAST ERROR")
	for _, at := range attempts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			at.BookingID, at.UserID, at.SchoolID, at.Date, at.Status,
			at.UpdatedAt.Format(time.DateTime), at.LastError)
	}
	return nil
}

func printNotifier(w io.Writer) orchestrator.Notifier {
	return orchestrator.NotifierFunc(func(n orchestrator.Notice) {
		fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Message)
	})
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.0f FCFA", v)
}
