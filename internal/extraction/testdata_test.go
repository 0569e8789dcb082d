package extraction

const aadhaarText = `Unique Identification Authority of India
Government of India
Asha Rao
DOB: 01/01/1990
FEMALE
1234 5678 9012
Aadhaar - Aam Aadmi ka Adhikar`

const panText = `INCOME TAX DEPARTMENT
GOVT. OF INDIA
Permanent Account Number Card
ABCDE1234F
Name
RAHUL KUMAR
Father's Name
SURESH KUMAR
Date of Birth
15/08/1985`

const voterText = `ELECTION COMMISSION OF INDIA
IDENTITY CARD
ABC1234567
Elector's Name: Priya Sharma
Father's Name: Ramesh Sharma
Sex: Female
Date of Birth: 12/03/1992`

const genericText = `Application Form
Full Name: Asha Rao
Date of Birth: 1990-01-01
Email: asha@example.com
Mobile: 9876543210`
