package predict

// ChestXRayLabels is the NIH ChestX-ray14 label set the classifier is trained
// against, in model output order.
var ChestXRayLabels = []string{
	"Atelectasis", "Cardiomegaly", "Effusion", "Infiltration",
	"Mass", "Nodule", "Pneumonia", "Pneumothorax",
	"Consolidation", "Edema", "Emphysema", "Fibrosis",
	"Pleural_Thickening", "Hernia",
}
